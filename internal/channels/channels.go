// Package channels loads the tunable channel list from a gnutv/tzap style
// channels.conf, where each line is colon-separated and the first field is
// the channel name (e.g. "TF1:586000000:INVERSION_AUTO:...").
package channels

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// List is an ordered, immutable set of channel names.
type List struct {
	names []string
	index map[string]int
}

// Load reads and parses the file at path.
func Load(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, _, _ := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return New(names)
}

// New builds a List, rejecting empty input and duplicate names.
func New(names []string) (*List, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("channel list is empty")
	}
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := idx[n]; dup {
			return nil, fmt.Errorf("duplicate channel %q", n)
		}
		idx[n] = i
	}
	return &List{names: append([]string(nil), names...), index: idx}, nil
}

// Names returns the channels in file order.
func (l *List) Names() []string {
	return append([]string(nil), l.names...)
}

func (l *List) Len() int { return len(l.names) }

// Contains reports whether name is a configured channel.
func (l *List) Contains(name string) bool {
	_, ok := l.index[name]
	return ok
}

// At resolves a form's channel index to its name.
func (l *List) At(i int) (string, bool) {
	if i < 0 || i >= len(l.names) {
		return "", false
	}
	return l.names[i], true
}
