package simd

// PolyRemainder performs binary polynomial division of the value held in
// the low nBits bits of word by generator (a polynomial of degree
// genDegree, its x^genDegree bit included, e.g. 0x5B9 for the RDS code),
// returning the genDegree-bit remainder. This is a generic core for
// cyclic/CRC-style codes; the rds package's block encoder and syndrome
// code carry their own shift-register loops and do not call it.
func PolyRemainder(word uint32, nBits int, generator uint32, genDegree int) uint32 {
	reg := word
	for i := nBits - 1; i >= genDegree; i-- {
		if reg&(1<<uint(i)) != 0 {
			reg ^= generator << uint(i-genDegree)
		}
	}
	return reg & ((1 << uint(genDegree)) - 1)
}

// PolyEncode appends a genDegree-bit parity remainder to a kBits-wide
// message, producing a (kBits+genDegree)-bit systematic codeword.
func PolyEncode(info uint32, kBits int, generator uint32, genDegree int) uint32 {
	shifted := info << uint(genDegree)
	rem := PolyRemainder(shifted, kBits+genDegree, generator, genDegree)
	return shifted | rem
}
