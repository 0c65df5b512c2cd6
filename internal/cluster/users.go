package cluster

import (
	"bufio"
	"os"
	"strings"
)

const passwdFile = "/etc/passwd"

// LoadUserList reads the legitimate-user allow-list. Each line's first
// field is a username. When the file is absent the local /etc/passwd
// accounts are used instead, mirroring a monitor running directly on a
// login node.
func LoadUserList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return loadPasswdUsers()
		}
		return nil, err
	}
	defer f.Close()

	var users []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 {
			users = append(users, fields[0])
		}
	}
	return users, sc.Err()
}

func loadPasswdUsers() ([]string, error) {
	f, err := os.Open(passwdFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var users []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name, _, ok := strings.Cut(sc.Text(), ":")
		if ok && name != "" {
			users = append(users, name)
		}
	}
	return users, sc.Err()
}

// RefreshUserList reloads the allow-list from its configured source. Safe
// to call at runtime; classification picks up the new list on the next
// reconcile tick.
func (c *Cluster) RefreshUserList() error {
	users, err := LoadUserList(c.cfg.UserListFile)
	if err != nil {
		return err
	}
	set := make(map[string]bool, len(users))
	for _, u := range users {
		set[u] = true
	}
	c.mu.Lock()
	c.users = set
	c.userNames = users
	c.mu.Unlock()
	return nil
}

// Users returns the current allow-list in load order.
func (c *Cluster) Users() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.userNames))
	copy(out, c.userNames)
	return out
}
