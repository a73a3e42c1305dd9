package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/screener/internal/interview"
)

var (
	stringSliceType = reflect.TypeOf([]string{})
	projectsType    = reflect.TypeOf([]interview.Project{})
)

// decodeResponse turns a model response into out. Both fenced and bare JSON
// are accepted; field types are coerced weakly ("8" decodes into an int).
func decodeResponse(raw string, out any) error {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return errors.New("response does not contain a json object")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return fmt.Errorf("parse gemini response: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			commaSeparatedHook,
			bulletedProjectsHook,
		),
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}

	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}

	return nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	// Models sometimes wrap the object in prose.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end < start {
		return ""
	}
	return raw[start : end+1]
}

// commaSeparatedHook accepts "Go, Python, SQL" where a list of strings is expected.
func commaSeparatedHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != stringSliceType {
		return data, nil
	}

	parts := strings.Split(data.(string), ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

// bulletedProjectsHook accepts a newline separated list where every project starts
// with a bullet, optionally formatted as "Title: description".
func bulletedProjectsHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != projectsType {
		return data, nil
	}
	return parseProjects(data.(string)), nil
}

func parseProjects(raw string) []interview.Project {
	projects := make([]interview.Project, 0)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "•-*· ")
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "n/a") {
			continue
		}

		title, description := splitProjectLine(line)
		projects = append(projects, interview.Project{Title: title, Description: description})
	}
	return projects
}

func splitProjectLine(line string) (string, string) {
	for _, sep := range []string{": ", " - ", " \u2013 ", " \u2014 "} {
		if idx := strings.Index(line, sep); idx > 0 {
			return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+len(sep):])
		}
	}
	return line, ""
}

// cleanReplies trims, drops empties and duplicates, and caps the list.
func cleanReplies(replies []string, limit int) []string {
	out := make([]string, 0, len(replies))
	seen := make(map[string]struct{}, len(replies))
	for _, reply := range replies {
		reply = strings.Join(strings.Fields(reply), " ")
		if reply == "" {
			continue
		}
		key := strings.ToLower(reply)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, reply)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// stripMarkdown removes emphasis markers the UI would otherwise read aloud.
func stripMarkdown(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.TrimSpace(s)
}
