package dropbox

import (
	"errors"
	"path"
	"strings"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/auth"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
)

// apiPath converts a session path into the form the Dropbox API expects,
// where the root folder is the empty string.
func apiPath(p string) string {
	p = path.Clean("/" + strings.TrimSpace(p))
	if p == "/" {
		return ""
	}

	return p
}

func isAuthError(err error) bool {
	_, ok := errors.AsType[auth.AuthAPIError](err)
	return ok
}

func isNotFound(err error) bool {
	if apiErr, ok := errors.AsType[files.ListFolderAPIError](err); ok {
		return apiErr.EndpointError != nil &&
			apiErr.EndpointError.Path != nil &&
			apiErr.EndpointError.Path.Tag == "not_found"
	}

	if apiErr, ok := errors.AsType[files.DownloadAPIError](err); ok {
		return apiErr.EndpointError != nil &&
			apiErr.EndpointError.Path != nil &&
			apiErr.EndpointError.Path.Tag == "not_found"
	}

	return false
}
