package mediastore

import (
	"net/url"
	"strconv"
	"strings"
)

// Locator is an opaque media reference of the form
// media://external/<collection>/<id>.
type Locator string

// Collection names the part of the store a locator addresses.
type Collection string

const (
	CollectionImages Collection = "images/media"
	CollectionVideo  Collection = "video/media"
	CollectionFiles  Collection = "file"
)

const (
	locatorScheme = "media"
	locatorVolume = "external"
)

// CollectionFor maps a content type to its collection. Unknown and empty
// content types map to the generic files collection.
func CollectionFor(mimeType string) Collection {
	switch {
	case strings.HasPrefix(mimeType, "image"):
		return CollectionImages
	case strings.HasPrefix(mimeType, "video"):
		return CollectionVideo
	default:
		return CollectionFiles
	}
}

// Accepts reports whether a record with mimeType is reachable through c.
func (c Collection) Accepts(mimeType string) bool {
	switch c {
	case CollectionFiles:
		return true
	case CollectionImages, CollectionVideo:
		return CollectionFor(mimeType) == c
	default:
		return false
	}
}

// LocatorFor builds the locator for id using the collection implied by mimeType.
func LocatorFor(id int64, mimeType string) Locator {
	return Locator(locatorScheme + "://" + locatorVolume + "/" + string(CollectionFor(mimeType)) + "/" + strconv.FormatInt(id, 10))
}

// ParseID extracts the record id embedded in loc. It reports false when the
// last path segment is not a non-negative integer.
func ParseID(loc Locator) (int64, bool) {
	u, err := url.Parse(string(loc))
	if err != nil {
		return 0, false
	}
	path := strings.TrimRight(u.Path, "/")
	if path == "" {
		path = strings.TrimRight(u.Opaque, "/")
	}
	idx := strings.LastIndexByte(path, '/')
	segment := path[idx+1:]
	if segment == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(segment, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// Collection returns the collection addressed by loc. Locators outside the
// media scheme report CollectionFiles so bare ids still resolve.
func (l Locator) Collection() Collection {
	u, err := url.Parse(string(l))
	if err != nil || u.Scheme != locatorScheme {
		return CollectionFiles
	}
	path := strings.Trim(u.Path, "/")
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return CollectionFiles
	}
	switch Collection(path[:idx]) {
	case CollectionImages:
		return CollectionImages
	case CollectionVideo:
		return CollectionVideo
	default:
		return CollectionFiles
	}
}

func (l Locator) String() string { return string(l) }
