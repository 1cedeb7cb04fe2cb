package fetch

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"midiplayer/core/utils"
)

// FileFetcher reads local paths and file:// URLs. Relative paths resolve against Root.
type FileFetcher struct {
	Root string
}

func (f FileFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := location
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", location, err)
		}
		path = u.Path
	}
	if f.Root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(f.Root, path)
	}

	data, err := utils.ReadLocalFile(path)
	if err != nil {
		if utils.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return data, nil
}
