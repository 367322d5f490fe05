package command

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var defaultContent []byte

// Content is the static portfolio text.
type Content struct {
	Name     string    `yaml:"name"`
	Tagline  string    `yaml:"tagline"`
	MOTD     string    `yaml:"motd"`
	About    string    `yaml:"about"`
	Projects []Project `yaml:"projects"`
	Socials  []Link    `yaml:"socials"`
}

type Project struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	Tags        []string `yaml:"tags"`
}

type Link struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DefaultContent returns the embedded portfolio.
func DefaultContent() Content {
	c, err := parseContent(defaultContent)
	if err != nil {
		panic(fmt.Sprintf("embedded content: %v", err))
	}
	return c
}

// LoadContent reads a portfolio document from path, or returns the embedded
// one when path is empty.
func LoadContent(path string) (Content, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultContent(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Content{}, fmt.Errorf("read content: %w", err)
	}
	return parseContent(data)
}

func parseContent(data []byte) (Content, error) {
	var c Content
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Content{}, fmt.Errorf("parse content: %w", err)
	}
	if strings.TrimSpace(c.Name) == "" {
		return Content{}, fmt.Errorf("parse content: name is required")
	}
	return c, nil
}
