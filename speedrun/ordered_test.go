package speedrun

import "testing"

func TestOrderedMapKeepsInsertionOrder(t *testing.T) {
	m := newOrderedMap[int]()
	for i, key := range []string{"c", "a", "b"} {
		m.Put(key, i)
	}
	keys := m.Keys()
	if len(keys) != 3 || keys[0] != "c" || keys[1] != "a" || keys[2] != "b" {
		t.Errorf("keys = %v", keys)
	}
	// Re-putting an existing key keeps its original position.
	m.Put("c", 9)
	if keys := m.Keys(); keys[0] != "c" {
		t.Errorf("keys after update = %v", keys)
	}
	if v, ok := m.Get("c"); !ok || v != 9 {
		t.Errorf("Get(c) = %d %v", v, ok)
	}
	if first, ok := m.First(); !ok || first != 9 {
		t.Errorf("First = %d %v", first, ok)
	}
}

func TestOrderedMapDelete(t *testing.T) {
	m := newOrderedMap[string]()
	m.Put("a", "1")
	m.Put("b", "2")
	m.Delete("a")
	if m.Len() != 1 {
		t.Fatalf("Len = %d", m.Len())
	}
	if _, ok := m.Get("a"); ok {
		t.Error("deleted key still present")
	}
	if keys := m.Keys(); len(keys) != 1 || keys[0] != "b" {
		t.Errorf("keys = %v", keys)
	}
	// Deleting a missing key is fine.
	m.Delete("zzz")
	if m.Len() != 1 {
		t.Errorf("Len after no-op delete = %d", m.Len())
	}
}
