package vfs

import "strings"

// LookupFollow splits path on "/", resolves absolute paths through
// fs.RootInode(), and follows symlinks (up to maxFollows) by reading the
// target and prepending it to the remaining path. Once maxFollows is
// exhausted, any further symlink encountered resolves to the symlink inode
// itself rather than failing.
func LookupFollow(fs FileSystem, path string, maxFollows int) (Inode, error) {
	cur := fs.RootInode()
	if cur == nil {
		return nil, ErrEntryNotFound
	}

	comps := splitPath(path)
	for len(comps) > 0 {
		name := comps[0]
		comps = comps[1:]
		if name == "" {
			continue
		}

		next, err := cur.Find(name)
		if err != nil {
			return nil, err
		}

		md, err := next.Metadata()
		if err != nil {
			return nil, err
		}

		if md.Type == TypeSymLink {
			if maxFollows <= 0 {
				// symlinks exhausted: further components resolve against
				// the symlink inode itself, not its target.
				cur = next
				continue
			}
			maxFollows--

			buf := make([]byte, 256)
			n, err := next.ReadAt(0, buf)
			if err != nil {
				return nil, err
			}
			target := string(buf[:n])

			if strings.HasPrefix(target, "/") {
				cur = fs.RootInode()
			}

			rest := append(splitPath(target), comps...)
			comps = rest
			continue
		}

		cur = next
	}

	return cur, nil
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
