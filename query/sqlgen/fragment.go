package sqlgen

import "strings"

// Marker is the store-agnostic placeholder used by Fragment.String.
const Marker = "?"

// Fragment is SQL text with its bound arguments kept in separate slots.
// chunks always holds one more element than args, and argument i sits
// between chunks[i] and chunks[i+1]. Placeholders are produced only when
// the fragment is rendered, so argument values never pass through the
// statement text.
type Fragment struct {
	chunks []string
	args   []any
}

// IsEmpty reports whether the fragment has no text and no arguments.
func (f Fragment) IsEmpty() bool {
	return len(f.args) == 0 && strings.Join(f.chunks, "") == ""
}

// Args returns a copy of the bound arguments in placeholder order.
func (f Fragment) Args() []any {
	out := make([]any, len(f.args))
	copy(out, f.args)
	return out
}

// Placeholders returns the number of parameter slots.
func (f Fragment) Placeholders() int { return len(f.args) }

// String renders the fragment with the canonical ? marker.
func (f Fragment) String() string {
	return f.render(func(int) string { return Marker })
}

// Render renders the fragment with the dialect's positional markers,
// numbered left to right.
func (f Fragment) Render(d Dialect) string {
	return f.render(d.Placeholder)
}

func (f Fragment) render(placeholder func(int) string) string {
	var sb strings.Builder
	for i, c := range f.chunks {
		sb.WriteString(c)
		if i < len(f.args) {
			sb.WriteString(placeholder(i + 1))
		}
	}
	return sb.String()
}

// fragmentBuilder assembles a Fragment from text and bound values.
type fragmentBuilder struct {
	cur    strings.Builder
	chunks []string
	args   []any
}

func (b *fragmentBuilder) text(parts ...string) {
	for _, p := range parts {
		b.cur.WriteString(p)
	}
}

func (b *fragmentBuilder) bind(v any) {
	b.chunks = append(b.chunks, b.cur.String())
	b.cur.Reset()
	b.args = append(b.args, v)
}

// bindList writes "(?, ?, ...)" for values.
func (b *fragmentBuilder) bindList(values []any) {
	b.text("(")
	for i, v := range values {
		if i > 0 {
			b.text(", ")
		}
		b.bind(v)
	}
	b.text(")")
}

func (b *fragmentBuilder) append(f Fragment) {
	for i, c := range f.chunks {
		b.text(c)
		if i < len(f.args) {
			b.bind(f.args[i])
		}
	}
}

func (b *fragmentBuilder) build() Fragment {
	chunks := make([]string, 0, len(b.chunks)+1)
	chunks = append(chunks, b.chunks...)
	chunks = append(chunks, b.cur.String())
	args := make([]any, len(b.args))
	copy(args, b.args)
	return Fragment{chunks: chunks, args: args}
}
