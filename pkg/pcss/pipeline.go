package pcss

// Options configures Process
type Options struct {
	BEM     BEMOptions
	PxToRem PxToRemOptions
}

// DefaultOptions returns the default BEM and px to rem settings
func DefaultOptions() Options {
	return Options{
		BEM:     DefaultBEMOptions(),
		PxToRem: DefaultPxToRemOptions(),
	}
}

// Process loads a stylesheet with its imports and runs the BEM, nesting and px to rem passes
// in that order. It returns the resulting CSS and every file that was read.
func Process(filename string, opts Options) (string, []string, error) {
	importer := NewImporter()
	sheet, err := importer.Load(filename)
	if err != nil {
		return "", nil, err
	}

	if err := ExpandBEM(sheet, opts.BEM); err != nil {
		return "", importer.Files, err
	}

	Unnest(sheet)
	PxToRem(sheet, opts.PxToRem)

	return sheet.String(), importer.Files, nil
}
