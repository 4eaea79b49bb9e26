package book

// Request is everything a caller can supply when asking for a book.
type Request struct {
	Idea       string           `json:"idea" yaml:"idea" validate:"required,min=3"`
	Overrides  Overrides        `json:"overrides,omitempty" yaml:"overrides,omitempty"`
	Characters []CharacterInput `json:"characters,omitempty" yaml:"characters,omitempty" validate:"dive"`
	// UnitKind selects chapter or page units. Empty means chapter.
	UnitKind UnitKind `json:"unit_kind,omitempty" yaml:"unit_kind,omitempty" validate:"omitempty,oneof=chapter page"`

	// Optional agents.
	FindTrends   bool   `json:"find_trends,omitempty" yaml:"find_trends,omitempty"`
	StyleExample string `json:"style_example,omitempty" yaml:"style_example,omitempty"`
	Translate    string `json:"translate,omitempty" yaml:"translate,omitempty"`
}

// CharacterInput describes a character either by text or by an uploaded image.
type CharacterInput struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Role        Role   `json:"role,omitempty" yaml:"role,omitempty"`
	ImageData   []byte `json:"image_data,omitempty" yaml:"-"`
	ImagePath   string `json:"image_path,omitempty" yaml:"image_path,omitempty"`
}

// Validate checks the request's struct tags.
func (r *Request) Validate() error {
	return validate.Struct(r)
}
