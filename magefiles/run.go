//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the editor with editor.toml.
func (Run) Editor() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run editor...")
	_, err := executeCmd("go", withArgs("run", "."), withStream())
	return err
}

// Runs the editor on the software backend for the configured number of frames.
func (Run) Headless() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run headless editor...")
	_, err := executeCmd("go", withArgs("run", "."), withEnv("NOVA_CONFIG", "headless.toml"), withStream())
	return err
}

// Runs every test of the module.
func (Run) Tests() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
