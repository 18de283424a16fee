// Command linkscan crawls a site and reports broken links and missing
// images, either once from the command line or as an HTTP job service.
package main

func main() {
	Execute()
}
