// Command mi-coach is a terminal client for the practice coach.
package main

func main() {
	Execute()
}
