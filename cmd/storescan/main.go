// Command storescan scans storefronts for free and lowest-priced items.
package main

import "os"

func main() {
	os.Exit(Execute())
}
