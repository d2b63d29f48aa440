package main

import "github.com/oshokin/swupdate-httpd/cmd/swupdate-fetch/cmd"

func main() {
	cmd.Execute()
}
