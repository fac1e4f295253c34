package cache

import "fmt"

func KeyRailway(fromCode, toCode string) string {
	return fmt.Sprintf("railway:%s:%s", fromCode, toCode)
}
