package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	require.Contains(t, names, "dump")
	require.Contains(t, names, "exec")
	require.Contains(t, names, "clean")
	require.Contains(t, names, "cleanall")

	require.NotNil(t, root.PersistentFlags().Lookup("config"))
	require.NotNil(t, root.PersistentFlags().Lookup("workers"))
	require.NotNil(t, root.RunE, "the bare command defaults to dump")
}
