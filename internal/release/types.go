package release

// Release is the subset of a mirror's release object the updater reads.
// GitHub reports the tag as tag_name; Gitee uses tag_name on most API
// versions and tag on some.
type Release struct {
	TagName string `json:"tag_name"`
	Tag     string `json:"tag"`
}

// TagFor returns the release tag under the field names the mirror may use.
func (r Release) TagFor(acceptShort bool) string {
	if r.TagName != "" {
		return r.TagName
	}
	if acceptShort {
		return r.Tag
	}
	return ""
}

// maxMetadataSize bounds how much of a release API response is read.
const maxMetadataSize = 1 << 20
