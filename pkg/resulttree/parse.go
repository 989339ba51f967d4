// Package resulttree builds the canonical result tree from backend payloads and
// provides helpers for walking it.
package resulttree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vitwang05/lexreview/pkg/models"
)

// Keys the backend has used for nested items, in merge order.
var childKeys = []string{"children", "sub_items", "details", "sub_details"}

// Keys that may carry the node title, in preference order.
var titleKeys = []string{"title", "sentence", "question"}

// Parse decodes a result set payload. It accepts {"results": [...], "process_time": n}
// (or "processing_time") and a bare array of nodes.
func Parse(data []byte) (*models.ResultSet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty result payload")
	}

	if data[0] == '[' {
		nodes, err := parseNodes(data)
		if err != nil {
			return nil, err
		}
		return &models.ResultSet{Nodes: nodes}, nil
	}

	fields, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("decode result set: %w", err)
	}

	set := &models.ResultSet{}
	if raw, ok := fields["results"]; ok && !isNull(raw) {
		if set.Nodes, err = parseNodes(raw); err != nil {
			return nil, err
		}
	}
	if set.Nodes == nil {
		set.Nodes = []*models.ResultNode{}
	}

	for _, key := range []string{"process_time", "processing_time"} {
		raw, ok := fields[key]
		if !ok || isNull(raw) {
			continue
		}
		var secs float64
		if err := json.Unmarshal(raw, &secs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		set.ProcessingTime = &secs
		break
	}

	return set, nil
}

// ParseNode decodes a single node and its subtree.
func ParseNode(data []byte) (*models.ResultNode, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("decode result node: %w", err)
	}
	return buildNode(fields)
}

func parseNodes(data []byte) ([]*models.ResultNode, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode result nodes: %w", err)
	}

	nodes := make([]*models.ResultNode, 0, len(items))
	for i, item := range items {
		node, err := ParseNode(item)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func buildNode(fields map[string]json.RawMessage) (*models.ResultNode, error) {
	node := &models.ResultNode{}

	for _, key := range titleKeys {
		if s, ok := stringField(fields, key); ok && s != "" {
			node.Title = s
			break
		}
	}
	node.Answer, _ = stringField(fields, "answer")

	for _, key := range []string{"citations", "documents"} {
		raw, ok := fields[key]
		if !ok || isNull(raw) {
			continue
		}
		groups, err := parseCitations(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		node.Citations = append(node.Citations, groups...)
	}

	for _, key := range childKeys {
		raw, ok := fields[key]
		if !ok || isNull(raw) {
			continue
		}
		children, err := parseNodes(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		node.Children = append(node.Children, children...)
	}

	return node, nil
}

// parseCitations keeps source names in payload order, which a Go map would lose.
func parseCitations(raw json.RawMessage) ([]models.CitationGroup, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		// Older payloads list only the names of the cited laws.
		var names []string
		if err := json.Unmarshal(raw, &names); err != nil {
			return nil, err
		}
		groups := make([]models.CitationGroup, 0, len(names))
		for _, name := range names {
			groups = append(groups, models.CitationGroup{Source: name})
		}
		return groups, nil
	case '{':
	default:
		return nil, fmt.Errorf("unexpected citation payload")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var groups []models.CitationGroup
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		source, _ := tok.(string)

		var entries []json.RawMessage
		if err := dec.Decode(&entries); err != nil {
			return nil, fmt.Errorf("source %q: %w", source, err)
		}

		group := models.CitationGroup{Source: source, Entries: make([]models.Citation, 0, len(entries))}
		for _, entry := range entries {
			c, err := parseCitation(entry)
			if err != nil {
				return nil, fmt.Errorf("source %q: %w", source, err)
			}
			group.Entries = append(group.Entries, c)
		}
		groups = append(groups, group)
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return groups, nil
}

func parseCitation(raw json.RawMessage) (models.Citation, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var title string
		err := json.Unmarshal(raw, &title)
		return models.Citation{Title: title}, err
	}

	var c struct {
		Title string  `json:"title"`
		Text  *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return models.Citation{}, err
	}
	return models.Citation{Title: c.Title, Text: c.Text}, nil
}

// decodeObject lower-cases keys so that naming variants from the backend collapse.
// When two spellings collide the all-lowercase one wins.
func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("expected object")
	}

	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		key := strings.ToLower(k)
		if _, dup := fields[key]; dup && k != key {
			continue
		}
		fields[key] = v
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
