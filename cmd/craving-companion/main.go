// Command craving-companion serves the craving-relief coaching API.
package main

func main() {
	Execute()
}
