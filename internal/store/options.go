package store

// Option configures a Store or Collection at open time.
type Option func(*options)

type options struct {
	codecs map[Kind]Codec
}

func defaultOptions() options {
	return options{
		codecs: map[Kind]Codec{
			KindObject: GobCodec{},
			KindBlob:   GobCodec{},
		},
	}
}

// WithCodec binds a codec to a non-primitive kind, replacing the default.
// KindState has no default: stores holding state columns must supply one.
func WithCodec(kind Kind, c Codec) Option {
	return func(o *options) {
		o.codecs[kind] = c
	}
}

// WithStateCodec binds the codec used for KindState cells. Shorthand for
// WithCodec(KindState, c).
func WithStateCodec(c Codec) Option {
	return WithCodec(KindState, c)
}
