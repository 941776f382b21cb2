package router

// Entry is one history record.
type Entry struct {
	View View
	Path string
}

// HistoryStack is an in-memory back/forward stack.
type HistoryStack struct {
	entries []Entry
	index   int
}

func NewHistory(first Entry) *HistoryStack {
	return &HistoryStack{entries: []Entry{first}}
}

// Push drops any forward entries and appends e.
func (h *HistoryStack) Push(e Entry) {
	h.entries = append(h.entries[:h.index+1], e)
	h.index = len(h.entries) - 1
}

// Replace overwrites the current entry.
func (h *HistoryStack) Replace(e Entry) {
	h.entries[h.index] = e
}

func (h *HistoryStack) Current() Entry {
	return h.entries[h.index]
}

func (h *HistoryStack) Back() (Entry, bool) {
	if h.index == 0 {
		return Entry{}, false
	}
	h.index--
	return h.entries[h.index], true
}

func (h *HistoryStack) Forward() (Entry, bool) {
	if h.index >= len(h.entries)-1 {
		return Entry{}, false
	}
	h.index++
	return h.entries[h.index], true
}

func (h *HistoryStack) Len() int {
	return len(h.entries)
}
