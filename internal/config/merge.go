package config

// Overrides carries options given explicitly on the command line (or in an
// API request). A nil pointer or nil slice means the option was not set.
type Overrides struct {
	Quality   *int
	MaxWidth  *int
	MaxHeight *int
	Workers   *int
	Skip      []string
}

// Merge resolves the effective options: an explicit override wins, then a
// config file value, then the default. file may be nil.
func Merge(defaults OptimizationOptions, file *FileConfig, cli Overrides) (OptimizationOptions, error) {
	opts := defaults
	opts.Skip = append([]string(nil), defaults.Skip...)

	if file != nil {
		applyInt(&opts.Quality, file.Quality)
		applyInt(&opts.MaxWidth, file.MaxWidth)
		applyInt(&opts.MaxHeight, file.MaxHeight)
		applyInt(&opts.Workers, file.Workers)
		if file.Skip != nil {
			opts.Skip = append([]string(nil), file.Skip...)
		}
	}

	applyInt(&opts.Quality, cli.Quality)
	applyInt(&opts.MaxWidth, cli.MaxWidth)
	applyInt(&opts.MaxHeight, cli.MaxHeight)
	applyInt(&opts.Workers, cli.Workers)
	if cli.Skip != nil {
		opts.Skip = append([]string(nil), cli.Skip...)
	}

	if err := opts.Validate(); err != nil {
		return OptimizationOptions{}, err
	}
	return opts, nil
}

func applyInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
