package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a name cannot be resolved to an identifier.
var ErrNotFound = errors.New("not found")

// odataQuote escapes a string for use inside an OData string literal.
func odataQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func filterParams(filter string) url.Values {
	return url.Values{"$filter": {filter}, "$top": {"20"}}
}

// findFirst runs the filter expressions in order and returns the first entry
// of the first non-empty result. Exact-match filters go first, partial
// matches last.
func findFirst[T any](ctx context.Context, c *Client, path string, folderID int64, filters ...string) (*T, error) {
	for _, f := range filters {
		results, err := list[T](ctx, c, path, filterParams(f), folderID)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			return &results[0], nil
		}
	}
	return nil, ErrNotFound
}

// FindFolder resolves a folder name to its ID. Tries the display name, then
// the fully qualified name, then a partial match.
func (c *Client) FindFolder(ctx context.Context, name string) (*Folder, error) {
	q := odataQuote(name)
	folder, err := findFirst[Folder](ctx, c, "/Folders", 0,
		"DisplayName eq "+q,
		"FullyQualifiedName eq "+q,
		fmt.Sprintf("contains(DisplayName, %s)", q),
	)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("folder %q: %w", name, ErrNotFound)
	}
	return folder, err
}

// FindRelease resolves a process name to its release within a folder.
// Tries the release name, the process key, then a partial match. As a last
// resort a GUID-shaped name is passed through raw as the release key, so
// pipelines can hand over a known key directly.
func (c *Client) FindRelease(ctx context.Context, folderID int64, name string) (*Release, error) {
	q := odataQuote(name)
	release, err := findFirst[Release](ctx, c, "/Releases", folderID,
		"Name eq "+q,
		"ProcessKey eq "+q,
		fmt.Sprintf("contains(Name, %s)", q),
	)
	if errors.Is(err, ErrNotFound) {
		if _, parseErr := uuid.Parse(name); parseErr == nil {
			return &Release{Key: name, Name: name}, nil
		}
		return nil, fmt.Errorf("process %q: %w", name, ErrNotFound)
	}
	return release, err
}

// FindRobots resolves robot names to IDs within a folder. Every requested
// name must resolve; the error names the ones that did not.
func (c *Client) FindRobots(ctx context.Context, folderID int64, names []string) ([]Robot, error) {
	robots := make([]Robot, 0, len(names))
	var missing []string
	for _, name := range names {
		q := odataQuote(name)
		robot, err := findFirst[Robot](ctx, c, "/Robots", folderID,
			"Name eq "+q,
			fmt.Sprintf("contains(Name, %s)", q),
		)
		if errors.Is(err, ErrNotFound) {
			missing = append(missing, name)
			continue
		}
		if err != nil {
			return nil, err
		}
		robots = append(robots, *robot)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("robots %s: %w", strings.Join(missing, ", "), ErrNotFound)
	}
	return robots, nil
}

// FindMachine resolves a machine name to its ID within a folder.
func (c *Client) FindMachine(ctx context.Context, folderID int64, name string) (*Machine, error) {
	q := odataQuote(name)
	machine, err := findFirst[Machine](ctx, c, "/Machines", folderID,
		"Name eq "+q,
		fmt.Sprintf("contains(Name, %s)", q),
	)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("machine %q: %w", name, ErrNotFound)
	}
	return machine, err
}
