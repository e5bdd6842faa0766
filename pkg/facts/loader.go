// Package facts loads sourced facts from files on disk. It stands in for
// the upstream source extractor: JSON, YAML, Markdown and HTML exports are
// turned into an immutable review.FactSet.
package facts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/docgate/pkg/types/review"
)

var (
	boldLineRe  = regexp.MustCompile(`^\s*(?:[-*+]\s+)?\*\*([^*:]{1,60}?):?\*\*:?\s+(.+?)\s*$`)
	plainLineRe = regexp.MustCompile(`^\s*(?:[-*+]\s+)?([\p{L}][\p{L}\p{N} _/-]{0,40}):\s+(.+?)\s*$`)
)

// entry is the long form of a fact in JSON and YAML files.
type entry struct {
	Key    string `mapstructure:"key"`
	Value  string `mapstructure:"value"`
	Source string `mapstructure:"source"`
	Page   string `mapstructure:"page"`
	Quote  string `mapstructure:"quote"`
}

// Expand resolves doublestar patterns to a sorted, de-duplicated file list.
// A pattern that matches nothing is an error.
func Expand(patterns ...string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid fact pattern %q", pattern)
		}
		if len(matches) == 0 {
			return nil, errors.Errorf("no fact files match %q", pattern)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Load reads every file matched by patterns. A key defined by two files is
// an error; facts are never overwritten silently.
func Load(patterns ...string) (review.FactSet, error) {
	files, err := Expand(patterns...)
	if err != nil {
		return review.FactSet{}, err
	}

	var all []review.Fact
	origin := make(map[string]string)
	var result error
	for _, file := range files {
		facts, err := LoadFile(file)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		for _, f := range facts {
			if prev, ok := origin[f.Key]; ok {
				result = multierror.Append(result, errors.Errorf("fact %q defined in both %s and %s", f.Key, prev, file))
				continue
			}
			origin[f.Key] = file
			all = append(all, f)
		}
	}
	if result != nil {
		return review.FactSet{}, result
	}
	return review.NewFactSet(all...), nil
}

// LoadFile extracts the facts of a single file based on its extension
func LoadFile(path string) ([]review.Fact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read fact file %s", path)
	}

	var facts []review.Fact
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		var raw interface{}
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
		facts, err = fromStructured(raw, path)
	case ".yaml", ".yml":
		var raw interface{}
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
		facts, err = fromStructured(raw, path)
	case ".md", ".markdown":
		facts, err = fromMarkdown(content, path)
	case ".html", ".htm":
		facts, err = fromHTML(content, path)
	default:
		return nil, errors.Errorf("unsupported fact file %s", path)
	}
	if err != nil {
		return nil, err
	}
	return checkDuplicates(facts, path)
}

func checkDuplicates(facts []review.Fact, path string) ([]review.Fact, error) {
	seen := make(map[string]struct{}, len(facts))
	for _, f := range facts {
		if _, ok := seen[f.Key]; ok {
			return nil, errors.Errorf("fact %q defined twice in %s", f.Key, path)
		}
		seen[f.Key] = struct{}{}
	}
	return facts, nil
}

// fromStructured accepts either a map of key to value (or to a long-form
// entry) or a list of long-form entries.
func fromStructured(raw interface{}, path string) ([]review.Fact, error) {
	switch v := raw.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		facts := make([]review.Fact, 0, len(keys))
		for _, k := range keys {
			f, err := toFact(k, v[k], path)
			if err != nil {
				return nil, err
			}
			facts = append(facts, f)
		}
		return facts, nil
	case []interface{}:
		facts := make([]review.Fact, 0, len(v))
		for i, item := range v {
			f, err := toFact("", item, path)
			if err != nil {
				return nil, errors.Wrapf(err, "entry %d", i)
			}
			if f.Key == "" {
				return nil, errors.Errorf("entry %d in %s has no key", i, path)
			}
			facts = append(facts, f)
		}
		return facts, nil
	case nil:
		return nil, nil
	default:
		return nil, errors.Errorf("%s must hold a map or a list of facts", path)
	}
}

func toFact(key string, raw interface{}, path string) (review.Fact, error) {
	switch v := stringKeys(raw).(type) {
	case map[string]interface{}:
		var e entry
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &e,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return review.Fact{}, errors.Wrap(err, "failed to create fact decoder")
		}
		if err := decoder.Decode(v); err != nil {
			return review.Fact{}, errors.Wrapf(err, "failed to decode fact %q in %s", key, path)
		}
		if e.Key == "" {
			e.Key = key
		}
		doc := e.Source
		if doc == "" {
			doc = path
		}
		return review.Fact{
			Key:    e.Key,
			Value:  strings.TrimSpace(e.Value),
			Source: review.SourceRef{Document: doc, Page: e.Page, Quote: e.Quote},
		}, nil
	case nil:
		return review.Fact{}, errors.Errorf("fact %q in %s has no value", key, path)
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return review.Fact{Key: key, Value: strings.Join(parts, ", "), Source: review.SourceRef{Document: path}}, nil
	default:
		return review.Fact{Key: key, Value: strings.TrimSpace(fmt.Sprint(v)), Source: review.SourceRef{Document: path}}, nil
	}
}

// stringKeys converts the map[interface{}]interface{} values produced by
// yaml.v2 decoders (goldmark-meta) into map[string]interface{}, recursively.
func stringKeys(raw interface{}) interface{} {
	switch v := raw.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = stringKeys(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = stringKeys(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = stringKeys(item)
		}
		return out
	default:
		return raw
	}
}

// fromMarkdown reads frontmatter keys as facts, then "Key: value" lines of
// the body for keys the frontmatter did not define.
func fromMarkdown(content []byte, path string) ([]review.Fact, error) {
	mdParser := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := mdParser.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrapf(err, "failed to parse markdown %s", path)
	}

	var facts []review.Fact
	defined := make(map[string]struct{})
	if metaData := meta.Get(pctx); metaData != nil {
		keys := make([]string, 0, len(metaData))
		for k := range metaData {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			f, err := toFact(k, metaData[k], path)
			if err != nil {
				return nil, err
			}
			if f.Source.Page == "" {
				f.Source.Page = "frontmatter"
			}
			facts = append(facts, f)
			defined[k] = struct{}{}
		}
	}

	offset := frontmatterLines(string(content))
	body := strings.Join(strings.Split(string(content), "\n")[offset:], "\n")
	for _, f := range fromLines(body, path, offset) {
		if _, ok := defined[f.Key]; ok {
			continue
		}
		defined[f.Key] = struct{}{}
		facts = append(facts, f)
	}
	return facts, nil
}

// frontmatterLines returns the number of lines taken by a leading
// "---" delimited block.
func frontmatterLines(content string) int {
	if !strings.HasPrefix(content, "---") {
		return 0
	}
	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return i + 1
		}
	}
	return 0
}

// fromHTML converts an exported page to Markdown and extracts its
// "Key: value" lines.
func fromHTML(content []byte, path string) ([]review.Fact, error) {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(string(content))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to convert %s to markdown", path)
	}
	var facts []review.Fact
	seen := make(map[string]struct{})
	for _, f := range fromLines(markdown, path, 0) {
		if _, ok := seen[f.Key]; ok {
			continue
		}
		seen[f.Key] = struct{}{}
		facts = append(facts, f)
	}
	return facts, nil
}

// fromLines picks "**Key:** value" and "Key: value" lines. Line numbers
// are 1-based and shifted by offset.
func fromLines(text, path string, offset int) []review.Fact {
	var facts []review.Fact
	for i, line := range strings.Split(text, "\n") {
		m := boldLineRe.FindStringSubmatch(line)
		if m == nil {
			m = plainLineRe.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		key := review.Slug(m[1])
		value := strings.TrimSpace(m[2])
		if key == "" || value == "" {
			continue
		}
		facts = append(facts, review.Fact{
			Key:   key,
			Value: value,
			Source: review.SourceRef{
				Document: path,
				Page:     fmt.Sprintf("line %d", offset+i+1),
				Quote:    strings.TrimSpace(line),
			},
		})
	}
	return facts
}
