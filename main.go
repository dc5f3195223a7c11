package main

import "github.com/yehorDorosh/mne-travel/cmd"

func main() {
	cmd.Execute()
}
