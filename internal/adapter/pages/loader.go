package pages

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"symphonia/internal/domain"
)

// Resolve expands glob patterns into a sorted, deduplicated list of
// page files. A pattern that matches nothing is an error so a typo in
// the config cannot silently build an empty index.
func Resolve(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: no page sources configured", domain.ErrInvalidArgument)
	}

	seen := make(map[string]struct{})
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: bad page source pattern %q: %v", domain.ErrInvalidArgument, pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: page source pattern %q matched no files", domain.ErrInvalidArgument, pattern)
		}
		for _, m := range matches {
			if _, dup := seen[m]; !dup {
				seen[m] = struct{}{}
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Load reads page records from every file in order. Page numbers must
// be >= 1 and strictly ascending across the whole sequence, which is
// what the chunker requires to map offsets back to pages.
func Load(paths []string) ([]domain.PageRecord, error) {
	var records []domain.PageRecord
	lastPage := 0
	for _, path := range paths {
		fileRecords, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		for _, rec := range fileRecords {
			if rec.Page <= lastPage {
				return nil, fmt.Errorf("%w: page %d in %s is not ascending (previous page %d)",
					domain.ErrInvalidArgument, rec.Page, path, lastPage)
			}
			lastPage = rec.Page
			records = append(records, rec)
		}
	}
	return records, nil
}

func loadFile(path string) ([]domain.PageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open page file: %w", err)
	}
	defer f.Close()

	var records []domain.PageRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec domain.PageRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("%w: %s line %d is not a page record: %v", domain.ErrInvalidArgument, path, lineNo, err)
		}
		if rec.Page < 1 {
			return nil, fmt.Errorf("%w: %s line %d has page %d, pages start at 1", domain.ErrInvalidArgument, path, lineNo, rec.Page)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read page file %s: %w", path, err)
	}
	return records, nil
}
