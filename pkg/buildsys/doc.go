// Package buildsys implements the asset pipeline's task system. Tasks are declared in a Starlark
// script (assets.star) and run asset steps, shell commands (through mvdan.cc/sh) and other tasks
// either in series or in parallel.
package buildsys
