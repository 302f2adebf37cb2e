package engine

import "strings"

// NamePlaceholder is replaced by the recipient's display name.
const NamePlaceholder = "[Name]"

// Personalize replaces every NamePlaceholder in body with name.
func Personalize(body, name string) string {
	return strings.ReplaceAll(body, NamePlaceholder, name)
}
