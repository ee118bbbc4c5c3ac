package wasm

// Arithmetic WASM module exporting two functions:
//
//	(func $add (param $a i32) (param $b i32) (result i32))
//	(func $div (param i32 i32) (result i32))  ;; traps on b == 0
//
// A name section carries parameter names for add only.
var testWASMModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // WASM_BINARY_MAGIC
	0x01, 0x00, 0x00, 0x00, // WASM_BINARY_VERSION
	// Type section
	0x01, 0x07, // section id, section size
	0x01,                               // number of types
	0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, // (func (param i32 i32) (result i32))
	// Function section
	0x03, 0x03, // section id, section size
	0x02,       // number of functions
	0x00, 0x00, // both use type 0
	// Export section
	0x07, 0x0d, // section id, section size
	0x02,                               // number of exports
	0x03, 0x61, 0x64, 0x64, 0x00, 0x00, // export "add" func 0
	0x03, 0x64, 0x69, 0x76, 0x00, 0x01, // export "div" func 1
	// Code section
	0x0a, 0x11, // section id, section size
	0x02, // number of functions
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b, // local.get 0, local.get 1, i32.add
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6d, 0x0b, // local.get 0, local.get 1, i32.div_s
	// Custom "name" section, local names subsection
	0x00, 0x10,
	0x04, 0x6e, 0x61, 0x6d, 0x65, // "name"
	0x02, 0x09, // subsection id 2, size
	0x01,       // one function
	0x00, 0x02, // func 0, two locals
	0x00, 0x01, 0x61, // 0 "a"
	0x01, 0x01, 0x62, // 1 "b"
}

// GetTestModule returns a simple WASM module for testing
func GetTestModule() []byte {
	return testWASMModule
}
