package store

import (
	"fmt"
	"strings"
)

const UsersPath = "users"

func UserPath(uid string) string { return UsersPath + "/" + uid }

func DetailsPath(uid string) string { return UserPath(uid) + "/details" }

func CowsPath(uid string) string { return UserPath(uid) + "/cows" }

func CowPath(uid, cowID string) string { return CowsPath(uid) + "/" + cowID }

func ReadingsPath(uid, cowID string) string { return CowPath(uid, cowID) + "/readings" }

func ReadingPath(uid, cowID, key string) string { return ReadingsPath(uid, cowID) + "/" + key }

// SplitPath breaks a document path into segments. Leading and trailing
// slashes are ignored; empty segments and reserved characters are rejected.
func SplitPath(path string) ([]string, error) {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segs := strings.Split(trimmed, "/")
	for _, seg := range segs {
		if seg == "" || strings.ContainsAny(seg, ".$#[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}
