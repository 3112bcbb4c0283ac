package session

import (
	"encoding/json"
	"fmt"
)

const localStorageReader = `(() => {
	const items = [];
	try {
		for (let i = 0; i < localStorage.length; i++) {
			const name = localStorage.key(i);
			items.push({name, value: localStorage.getItem(name)});
		}
	} catch (e) {}
	return {origin: location.origin, localStorage: items};
})()`

// localStorageSetter returns a script writing items and evaluating to their count
func localStorageSetter(items []Item) string {
	data, _ := json.Marshal(items)
	return fmt.Sprintf(`(items => {
	for (const {name, value} of items) localStorage.setItem(name, value);
	return items.length;
})(%s)`, data)
}
