package extract

import "strings"

var knownCommands = map[string]bool{}

func init() {
	for _, name := range strings.Fields(`
		ls cd pwd mkdir rmdir rm cp mv touch cat echo printf grep egrep find
		chmod chown chgrp ln head tail less more sed awk sort uniq wc cut tr
		tee xargs diff patch tar zip unzip gzip gunzip curl wget ssh scp rsync
		ping traceroute netstat ifconfig ip ps kill killall top htop df du free
		uname whoami hostname date env export source which whereis man history
		git npm npx yarn pnpm node deno bun pip pip3 python python3 pipenv poetry
		go cargo rustc rustup make cmake gcc g++ clang java javac mvn gradle
		ruby gem bundle rails php composer dotnet docker podman kubectl helm
		terraform ansible apt apt-get yum dnf pacman brew snap systemctl service
		journalctl crontab nohup open xdg-open code vim nano jq tree file stat
		dd mkfs fdisk shutdown reboot halt poweroff del rd erase format
	`) {
		knownCommands[name] = true
	}
}

// looksLikeCommand is the heuristic for backticked tokens: the first word,
// after an optional sudo, must be a known program or a relative executable
// path. Program names match regardless of case.
func looksLikeCommand(s string) bool {
	return firstWordKnown(s, true)
}

// looksLikePlainCommand is the stricter test for unquoted numbered items,
// where prose like "Open the page" must not pass.
func looksLikePlainCommand(s string) bool {
	return firstWordKnown(s, false)
}

func firstWordKnown(s string, foldCase bool) bool {
	fields := strings.Fields(s)
	if len(fields) == 0 || strings.ContainsRune(s, '\n') {
		return false
	}
	first := fields[0]
	if first == "sudo" {
		if len(fields) == 1 {
			return false
		}
		first = fields[1]
	}
	if strings.HasPrefix(first, "./") || strings.HasPrefix(first, "~/") {
		return true
	}
	if foldCase {
		first = strings.ToLower(first)
	}
	return knownCommands[first]
}

// segments splits a command line on && and ; into its simple commands.
func segments(cmd string) []string {
	var out []string
	for _, part := range strings.Split(cmd, "&&") {
		for _, seg := range strings.Split(part, ";") {
			if seg = strings.TrimSpace(seg); seg != "" {
				out = append(out, seg)
			}
		}
	}
	return out
}
