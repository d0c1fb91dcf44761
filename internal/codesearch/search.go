// internal/codesearch/search.go
package codesearch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultMaxResults: max_results 기본값.
const DefaultMaxResults = 50

var (
	extensions = map[string]bool{
		".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".vue": true,
		".json": true, ".py": true, ".java": true, ".kt": true, ".swift": true,
		".go": true,
	}
	ignoredDirs = map[string]bool{
		"node_modules": true, ".git": true, "dist": true, "build": true,
		"coverage": true, ".next": true, "out": true,
	}

	errEnough = errors.New("enough matches")
)

type Match struct {
	File          string   `json:"file"`
	Line          int      `json:"line"`
	Code          string   `json:"code"`
	ContextBefore []string `json:"context_before"`
	ContextAfter  []string `json:"context_after"`
}

type Result struct {
	FieldName     string  `json:"field_name"`
	ProjectPath   string  `json:"project_path"`
	TotalMatches  int     `json:"total_matches"`
	Matches       []Match `json:"matches"`
	SearchedFiles int     `json:"searched_files"`
}

// Find
// ------------------------------------------------------------
// root 아래 소스 파일에서 field 가 쓰인 줄을 찾는다.
// 한 줄은 다음 중 하나에 해당하면 매치 (대소문자 무시):
//   - 따옴표로 감싼 이름:  "field" 'field' `field`
//   - 단어 경계로 끊긴 식별자
//   - object key:          field:
//   - property 접근:       .field
//
// 읽을 수 없는 디렉토리 / 파일은 건너뛰고, max 개를 채우면 멈춘다.
func Find(ctx context.Context, root, field string, max int) (Result, error) {
	if max <= 0 {
		max = DefaultMaxResults
	}
	res := Result{FieldName: field, ProjectPath: root, Matches: []Match{}}

	info, err := os.Stat(root)
	if err != nil {
		return res, fmt.Errorf("project path does not exist: %s", root)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("project path is not a directory: %s", root)
	}
	if strings.TrimSpace(field) == "" {
		return res, errors.New("field name is empty")
	}

	re := fieldPattern(field)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// 접근 불가 디렉토리 등은 건너뛴다.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && ignoredDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !extensions[filepath.Ext(d.Name())] {
			return nil
		}

		res.SearchedFiles++
		res.Matches = searchFile(path, re, res.Matches, max)
		if len(res.Matches) >= max {
			return errEnough
		}
		return nil
	})
	if err != nil && !errors.Is(err, errEnough) {
		return res, err
	}

	res.TotalMatches = len(res.Matches)
	log.Debug().
		Str("field", field).
		Str("root", root).
		Int("files", res.SearchedFiles).
		Int("matches", res.TotalMatches).
		Msg("code search finished")
	return res, nil
}

func fieldPattern(field string) *regexp.Regexp {
	q := regexp.QuoteMeta(field)
	return regexp.MustCompile(`(?i)` +
		"[\"'`]" + q + "[\"'`]" +
		`|\b` + q + `\b` +
		`|` + q + `:` +
		`|\.` + q + `\b`)
}

func searchFile(path string, re *regexp.Regexp, matches []Match, max int) []Match {
	lines, err := readLines(path)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("skip unreadable file")
		return matches
	}
	for i, line := range lines {
		if len(matches) >= max {
			break
		}
		if !re.MatchString(line) {
			continue
		}
		matches = append(matches, Match{
			File:          path,
			Line:          i + 1,
			Code:          strings.TrimSpace(line),
			ContextBefore: window(lines, i-2, i),
			ContextAfter:  window(lines, i+1, i+3),
		})
	}
	return matches
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// window 는 [start, end) 구간의 줄을 trim 해서 돌려준다. 범위 밖은 잘라낸다.
func window(lines []string, start, end int) []string {
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	out := []string{}
	for i := start; i < end; i++ {
		out = append(out, strings.TrimSpace(lines[i]))
	}
	return out
}
