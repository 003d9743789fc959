// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Archive advanced search JSON structures.
type searchResponse struct {
	Response struct {
		NumFound int         `json:"numFound"`
		Docs     []searchDoc `json:"docs"`
	} `json:"response"`
}

type searchDoc struct {
	Identifier string     `json:"identifier"`
	Title      stringList `json:"title"`
	Creator    stringList `json:"creator"`
	Subject    stringList `json:"subject"`
	Year       looseYear  `json:"year"`
}

// Archive metadata JSON structures.
type metadataResponse struct {
	Files []metadataFile `json:"files"`
}

type metadataFile struct {
	Name   string `json:"name"`
	Format string `json:"format"`
}

// stringList accepts either a JSON string or an array of strings; the
// archive returns both shapes for multi-valued fields.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var many []string
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*l = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	if one == "" {
		*l = nil
		return nil
	}
	*l = stringList{one}
	return nil
}

// looseYear accepts a year as a JSON number or string. Strings are read
// up to the first non-digit ("1999-05" is 1999); anything unparsable is 0.
type looseYear int

func (y *looseYear) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*y = 0
		return nil
	}

	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}

	*y = looseYear(leadingInt(strings.TrimSpace(s)))
	return nil
}

func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
