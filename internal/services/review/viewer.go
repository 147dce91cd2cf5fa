package review

type ImageVariant int

const (
	VariantMarked ImageVariant = iota
	VariantOriginal
)

func (v ImageVariant) String() string {
	if v == VariantOriginal {
		return "original"
	}
	return "marked"
}

// Viewer holds both resolved image URLs of an item. Switching the variant only
// changes which one is displayed.
type Viewer struct {
	Original string
	Marked   string
	Variant  ImageVariant
}

func newViewer(resolve func(string) string, original, marked *string) Viewer {
	v := Viewer{}
	if original != nil {
		v.Original = resolve(*original)
	}
	if marked != nil {
		v.Marked = resolve(*marked)
	}
	if v.Marked == "" {
		v.Variant = VariantOriginal
	}
	return v
}

// Current is the URL of the displayed variant, falling back to the other one
// when it is missing.
func (v Viewer) Current() string {
	if v.Variant == VariantMarked && v.Marked != "" {
		return v.Marked
	}
	if v.Original != "" {
		return v.Original
	}
	return v.Marked
}

func (v *Viewer) Toggle() {
	if v.Variant == VariantMarked {
		v.Variant = VariantOriginal
	} else if v.Marked != "" {
		v.Variant = VariantMarked
	}
}
