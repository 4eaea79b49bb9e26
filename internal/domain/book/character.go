package book

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleMain       Role = "main"
	RoleSecondary  Role = "secondary"
	RoleBackground Role = "background"
)

type ImageSource string

const (
	SourceText  ImageSource = "text"
	SourceImage ImageSource = "image"
)

type Character struct {
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Description string      `json:"description" yaml:"description" validate:"required"`
	Role        Role        `json:"role" yaml:"role" validate:"omitempty,oneof=main secondary background"`
	ImageSource ImageSource `json:"image_source" yaml:"image_source" validate:"omitempty,oneof=text image"`
}

// Normalize fills defaults: role main, source text, and a generic description
// when none was given.
func (c *Character) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	switch c.Role {
	case RoleMain, RoleSecondary, RoleBackground:
	default:
		c.Role = RoleMain
	}
	if c.ImageSource != SourceImage {
		c.ImageSource = SourceText
	}
	if strings.TrimSpace(c.Description) == "" {
		c.Description = FallbackCharacterDescription(c.Name)
	}
}

func FallbackCharacterDescription(name string) string {
	return fmt.Sprintf("A distinctive character named %s with unique visual features that make them memorable and engaging for readers.", name)
}
