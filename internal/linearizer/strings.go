package linearizer

import (
	"strings"

	"classicalc/internal/ast"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

// mangleStringLiteral turns a string literal's contents into an
// identifier-safe name prefixed "str_": spaces become underscores, and
// every other character outside [A-Za-z0-9_] becomes 'x' followed by its
// code point in lowercase hex. The mapping is not injective: "a b" and
// "a_b", for example, produce the same name.
func mangleStringLiteral(s string) string {
	var b strings.Builder
	b.WriteString("str_")
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('x')
			b.WriteString(strconvItoaHex(int(r)))
		}
	}
	return b.String()
}

func strconvItoaHex(v int) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v%16]
		v /= 16
	}
	return string(buf[i:])
}

// internStringLiteral resolves a string-literal AST node to an operand
// naming a u8[N] global: if the mangled name was already interned
// (same contents), the existing global is reused; otherwise a fresh
// global is created with initializerBytes populated byte-wise
// (including the trailing NUL).
func (fb *FunctionBuilder) internStringLiteral(n *ast.Node) (tac.Operand, error) {
	content := n.ValueStr
	if v, ok := fb.strings[content]; ok {
		return tac.Operand{Name: v.Name, Type: types.Decay(v.Type), Permutation: tac.Standard}, nil
	}
	name := mangleStringLiteral(content)
	bytes := append([]byte(content), 0)
	t := types.Type{Basic: types.U8, ArraySize: uint32(len(bytes)), InitializerBytes: bytes}
	v, err := fb.globals.CreateVariable(name, t, true, 0, false, fb.sizeOf)
	if err != nil {
		return tac.Operand{}, err
	}
	v.IsAssigned = true
	fb.strings[content] = v
	return tac.Operand{Name: v.Name, Type: types.Decay(t), Permutation: tac.Standard}, nil
}
