package story

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"

	"github.com/vampirenirmal/bookforge/internal/agent"
	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/phase"
)

// analysisEdge bounds the longest side of an image sent for analysis.
const analysisEdge = 768

// CharacterProcessor builds the character roster from request inputs.
// Characters given as images are described by an ImageAnalyzer.
type CharacterProcessor struct {
	phase.BaseStage
	analyzer agent.ImageAnalyzer
	prompts  *agent.PromptCache
}

// NewCharacterProcessor accepts a nil analyzer, in which case image
// characters get the generic description.
func NewCharacterProcessor(analyzer agent.ImageAnalyzer, opts ...phase.BaseStageOption) *CharacterProcessor {
	return &CharacterProcessor{
		BaseStage: phase.NewBaseStage("characters", opts...),
		analyzer:  analyzer,
		prompts:   agent.GetPromptCache(),
	}
}

// Process returns normalized characters in input order. Unnamed inputs are
// dropped. Failures never abort: a character that cannot be described keeps
// the generic description.
func (c *CharacterProcessor) Process(ctx context.Context, inputs []book.CharacterInput) ([]book.Character, error) {
	out := make([]book.Character, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			c.Logger().Warn("dropping unnamed character")
			continue
		}
		if seen[strings.ToLower(name)] {
			c.Logger().Warn("dropping duplicate character", "name", name)
			continue
		}
		seen[strings.ToLower(name)] = true

		ch := book.Character{Name: name, Description: in.Description, Role: in.Role, ImageSource: book.SourceText}
		if in.ImagePath != "" || len(in.ImageData) > 0 {
			ch.ImageSource = book.SourceImage
			desc, err := c.describe(ctx, name, in)
			if err != nil {
				c.Logger().Warn("character image analysis failed", "name", name, "error", err)
			} else if strings.TrimSpace(in.Description) == "" {
				ch.Description = desc
			}
		}
		ch.Normalize()
		out = append(out, ch)
	}

	c.Logger().Info("characters processed", "count", len(out))
	return out, nil
}

func (c *CharacterProcessor) describe(ctx context.Context, name string, in book.CharacterInput) (string, error) {
	if c.analyzer == nil {
		return "", fmt.Errorf("%w: no image analyzer configured", core.ErrInvalidInput)
	}

	data := in.ImageData
	if len(data) == 0 {
		var err error
		if data, err = os.ReadFile(in.ImagePath); err != nil {
			return "", fmt.Errorf("reading character image: %w", err)
		}
	}

	scaled, err := DownscaleJPEG(data, analysisEdge)
	if err != nil {
		return "", err
	}

	system, user, err := c.prompts.Render(agent.PromptCharacter, map[string]any{"Name": name})
	if err != nil {
		return "", err
	}
	prompt := user
	if system != "" {
		prompt = system + "\n\n" + user
	}

	var desc string
	err = c.Retry(ctx, "describe_character", func(ctx context.Context) error {
		var err error
		desc, err = c.analyzer.DescribeImage(ctx, prompt, scaled, "image/jpeg")
		return err
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(desc), nil
}

// DownscaleJPEG re-encodes an uploaded image as JPEG with its longest side at
// most edge pixels.
func DownscaleJPEG(data []byte, edge int) ([]byte, error) {
	if !filetype.IsImage(data) {
		return nil, fmt.Errorf("%w: character upload is not an image", core.ErrInvalidInput)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding character image: %v", core.ErrInvalidInput, err)
	}
	if b := img.Bounds(); b.Dx() > edge || b.Dy() > edge {
		img = imaging.Fit(img, edge, edge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encoding character image: %w", err)
	}
	return buf.Bytes(), nil
}
