// Command himdctl inspects and edits HiMD MiniDisc volumes mounted as a
// local directory tree, the way tombatools wraps its extractors in a
// single Cobra binary.
package main

func main() {
	Execute()
}
