// Command feectl is the operator CLI for the fee engine: calendar queries,
// split previews and manual process triggers against a server database.
package main

func main() {
	Execute()
}
