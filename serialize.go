package recattn

import (
	"errors"
	"fmt"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var c Cell
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeCell)
	var m MeanPooling
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeMeanPooling)
}

// DeserializeCell deserializes a Cell.
//
// The sub-modules are decoded through their registered
// serializer types.
// History and gradients are not saved, so a deserialized
// Cell must run Forward before Backward.
func DeserializeCell(d []byte) (*Cell, error) {
	var rho, outSize, forwardStep, backwardStep serializer.Int
	var glimpseObj, actionObj serializer.Serializer
	err := serializer.DeserializeAny(d, &rho, &outSize, &forwardStep, &backwardStep,
		&glimpseObj, &actionObj)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Cell", err)
	}
	glimpse, ok := glimpseObj.(Module)
	if !ok {
		return nil, essentials.AddCtx("deserialize Cell",
			fmt.Errorf("glimpse type %s is not a Module", glimpseObj.SerializerType()))
	}
	action, ok := actionObj.(Module)
	if !ok {
		return nil, essentials.AddCtx("deserialize Cell",
			fmt.Errorf("action type %s is not a Module", actionObj.SerializerType()))
	}
	res, err := NewCell(int(outSize), glimpse, action, int(rho))
	if err != nil {
		return nil, essentials.AddCtx("deserialize Cell", err)
	}
	res.forwardStep = int(forwardStep)
	res.backwardStep = int(backwardStep)
	return res, nil
}

// SerializerType returns the unique ID used to serialize
// a Cell with the serializer package.
func (c *Cell) SerializerType() string {
	return "github.com/unixpickle/recattn.Cell"
}

// Serialize serializes the Cell and its sub-modules.
// Both sub-modules must implement serializer.Serializer.
func (c *Cell) Serialize() ([]byte, error) {
	glimpse, ok := c.glimpse.(serializer.Serializer)
	if !ok {
		return nil, errors.New("serialize Cell: glimpse module is not a serializer.Serializer")
	}
	action, ok := c.action.(serializer.Serializer)
	if !ok {
		return nil, errors.New("serialize Cell: action module is not a serializer.Serializer")
	}
	return serializer.SerializeAny(
		serializer.Int(c.rho),
		serializer.Int(c.outSize),
		serializer.Int(c.forwardStep),
		serializer.Int(c.backwardStep),
		glimpse,
		action,
	)
}
