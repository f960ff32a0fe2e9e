package types

// DictionaryItem is a libav option (e.g. a demuxer option).
type DictionaryItem struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type DictionaryItems []DictionaryItem

// Deduplicate keeps only the last value of each key, preserving the order
// of those last occurrences.
func (s DictionaryItems) Deduplicate() DictionaryItems {
	last := map[string]int{}
	for idx, item := range s {
		last[item.Key] = idx
	}
	var result DictionaryItems
	for idx, item := range s {
		if last[item.Key] == idx {
			result = append(result, item)
		}
	}
	return result
}

func (s DictionaryItems) Get(key string) (string, bool) {
	for idx := len(s) - 1; idx >= 0; idx-- {
		if s[idx].Key == key {
			return s[idx].Value, true
		}
	}
	return "", false
}
