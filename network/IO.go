package network

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Save serializes a NeuralNet's architecture and parameter values to
// the file at path, overwriting any existing file.
func Save(path string, n NeuralNet) error {
	net, ok := n.(*mlp)
	if !ok {
		return fmt.Errorf("save: cannot serialize network of type %T", n)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: could not create file: %v", err)
	}
	defer file.Close()

	enc := gob.NewEncoder(file)
	if err := enc.Encode(net); err != nil {
		return fmt.Errorf("save: could not encode network: %v", err)
	}
	return nil
}

// Load deserializes a NeuralNet previously written by Save from the
// file at path. The error from opening a non-existent file is returned
// unwrapped so that callers can test it with os.IsNotExist.
func Load(path string) (NeuralNet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	net := new(mlp)
	dec := gob.NewDecoder(file)
	if err := dec.Decode(net); err != nil {
		return nil, fmt.Errorf("load: could not decode network: %v", err)
	}
	return net, nil
}
