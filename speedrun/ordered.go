package speedrun

// orderedMap preserves insertion order of its keys. The upstream API declares
// categories, levels and variables in a meaningful order (default category
// selection depends on it), so plain Go maps are not enough here.
type orderedMap[V any] struct {
	order []string
	items map[string]V
}

func newOrderedMap[V any]() *orderedMap[V] {
	return &orderedMap[V]{items: make(map[string]V)}
}

func (m *orderedMap[V]) Get(key string) (V, bool) {
	v, ok := m.items[key]
	return v, ok
}

// Put inserts or replaces a value. New keys go to the back.
func (m *orderedMap[V]) Put(key string, value V) {
	if _, ok := m.items[key]; !ok {
		m.order = append(m.order, key)
	}
	m.items[key] = value
}

func (m *orderedMap[V]) Delete(key string) {
	if _, ok := m.items[key]; !ok {
		return
	}
	delete(m.items, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *orderedMap[V]) Len() int { return len(m.items) }

// Keys returns the keys in insertion order. The slice is a copy.
func (m *orderedMap[V]) Keys() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Values returns the values in insertion order.
func (m *orderedMap[V]) Values() []V {
	out := make([]V, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.items[k])
	}
	return out
}

// First returns the first inserted value, if any.
func (m *orderedMap[V]) First() (V, bool) {
	if len(m.order) == 0 {
		var zero V
		return zero, false
	}
	return m.items[m.order[0]], true
}
