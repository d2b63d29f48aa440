package main

import "github.com/oshokin/swupdate-httpd/cmd/swupdate-httpd/cmd"

func main() {
	cmd.Execute()
}
