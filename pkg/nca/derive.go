package nca

// deriveSectionType maps a raw fs_type/hash_type pair, the archive's
// format version, and the raw crypto_type byte into the section's logical
// SectionType, mirroring the reference implementation's ncaGetFsHeader
// dispatch: PartitionFS requires the flat-SHA256 hash descriptor, RomFS
// requires the hierarchical-integrity descriptor and is further split into
// PatchRomFS/RomFS by whether encryption_type is AesCtrEx (not by
// has_sparse_layer, which the reference tracks independently of section
// type), and the V0 RomFS variant requires the flat-SHA256 descriptor on a
// V0 archive. Any other fs_type/hash_type/format combination is invalid.
func deriveSectionType(fsType fsTypeByte, hashType hashTypeByte, cryptoType cryptoTypeByte, format FormatVersion) SectionType {
	switch {
	case fsType == fsTypePartitionFS && hashType == hashTypeFlatSHA256:
		return SectionPartitionFS
	case fsType == fsTypeRomFS && hashType == hashTypeIntegrity:
		if cryptoType == cryptoTypeCTREx {
			return SectionPatchRomFS
		}
		return SectionRomFS
	case fsType == fsTypeRomFS && hashType == hashTypeFlatSHA256 && format == FormatV0:
		return SectionV0RomFS
	default:
		return SectionInvalid
	}
}

// deriveEncryptionKind maps a raw crypto_type byte to an EncryptionKind,
// returning EncryptionUnknown for anything outside the four valid values
// rather than falling back to EncryptionNone — a garbage crypto_type byte
// must disable the section, not be silently treated as plaintext (mirrors
// the reference implementation's ncaGetFsHeader bounds check on
// encryption_type, which skips the section outright).
func deriveEncryptionKind(cryptoType cryptoTypeByte) EncryptionKind {
	switch cryptoType {
	case cryptoTypeNone:
		return EncryptionNone
	case cryptoTypeXTS:
		return EncryptionXTS
	case cryptoTypeCTR:
		return EncryptionCTR
	case cryptoTypeCTREx:
		return EncryptionCTREx
	default:
		return EncryptionUnknown
	}
}

// deriveHashTreeKind maps a raw hash_type byte to a HashTreeKind.
func deriveHashTreeKind(hashType hashTypeByte) HashTreeKind {
	if hashType == hashTypeIntegrity {
		return HashTreeIntegrity
	}
	return HashTreeFlatSHA256
}
