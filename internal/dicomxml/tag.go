package dicomxml

// Tag identifies a DICOM (group, element) pair. iSyntax stores its own
// private metadata under group 0x301D (and a handful under 0x8B01 and the
// standard 0x0028), not under any public DICOM dictionary group, so this
// package carries its own small table rather than pulling in a general
// DICOM dataset library.
type Tag struct {
	Group, Element uint16
}

// Equals reports whether t and other identify the same tag.
func (t Tag) Equals(other Tag) bool { return t == other }

// Private reports whether the tag's group number is odd, the DICOM
// convention for implementation-private tags.
func (t Tag) Private() bool { return t.Group%2 == 1 }

// Group 0x301D: iSyntax-private UFS image attributes.
var (
	PIMDPUFSInterfaceVersion = Tag{0x301D, 0x1001}
	PIMDPUFSBarcode          = Tag{0x301D, 0x1002}
	PIMDPScannedImages       = Tag{0x301D, 0x1003}
	PIMDPImageType           = Tag{0x301D, 0x1004}
	PIMDPImageData           = Tag{0x301D, 0x1005}

	UFSImageGeneralHeaders            = Tag{0x301D, 0x2000}
	UFSImageNumberOfBlocks            = Tag{0x301D, 0x2001}
	UFSImageDimensionsOverBlock       = Tag{0x301D, 0x2002}
	UFSImageDimensions                = Tag{0x301D, 0x2003}
	UFSImageDimensionName              = Tag{0x301D, 0x2004}
	UFSImageDimensionType               = Tag{0x301D, 0x2005}
	UFSImageDimensionUnit               = Tag{0x301D, 0x2006}
	UFSImageDimensionScaleFactor        = Tag{0x301D, 0x2007}
	UFSImageDimensionDiscreteValuesStr  = Tag{0x301D, 0x2008}
	UFSImageBlockHeaderTemplates        = Tag{0x301D, 0x2009}
	UFSImageDimensionRanges             = Tag{0x301D, 0x200A}
	UFSImageDimensionRange              = Tag{0x301D, 0x200B}
	UFSImageDimensionInBlock            = Tag{0x301D, 0x200C}
	UFSImageBlockHeaders                = Tag{0x301D, 0x200D}
	UFSImageBlockCoordinate             = Tag{0x301D, 0x200E}
	UFSImageBlockCompressionMethod      = Tag{0x301D, 0x200F}
	UFSImageBlockHeaderTemplateID       = Tag{0x301D, 0x2012}
	UFSImagePixelTransformationMethod   = Tag{0x301D, 0x2013}
	UFSImageBlockHeaderTable            = Tag{0x301D, 0x2014} // data model < 100
	UFSImageSeektable                   = Tag{0x301D, 0x2015} // data model < 100, binary payload, not an XML attribute
	UFSImageClusterHeaderTemplates      = Tag{0x301D, 0x2016} // data model >= 100
	UFSImageDimensionsOverCluster       = Tag{0x301D, 0x2017}
	UFSImageClusterHeaderTable          = Tag{0x301D, 0x201F} // data model >= 100
	UFSImageDimensionsInCluster         = Tag{0x301D, 0x2021}
	UFSImageValidDataEnvelopes          = Tag{0x301D, 0x2023}
	UFSImageOppExtremeVertices          = Tag{0x301D, 0x2024}
	UFSImageOppExtremeVertex            = Tag{0x301D, 0x2025}
	UFSImageValidEnvelopeDimensions     = Tag{0x301D, 0x2026}
	UFSImageDimensionOrigin             = Tag{0x301D, 0x2027}
	UFSImagePixelTransformMethod        = Tag{0x301D, 0x2029}
	UFSImageOPPExtremeVertex            = Tag{0x301D, 0x1025} // data model >= 100
)

// Group 0x8B01: pixel data representation.
var (
	PIIMPixelDataRepresentationSequence = Tag{0x8B01, 0x1001}
)

// Group 0x0028: standard DICOM image pixel module, reused by iSyntax for
// bit depth and the embedded ICC profile.
var (
	DICOMSamplesPerPixel             = Tag{0x0028, 0x0002}
	DICOMBitsAllocated                = Tag{0x0028, 0x0100}
	DICOMBitsStored                   = Tag{0x0028, 0x0101}
	DICOMHighBit                      = Tag{0x0028, 0x0102}
	DICOMPixelRepresentation          = Tag{0x0028, 0x0103}
	DICOMICCProfile                   = Tag{0x0028, 0x2000}
	DICOMLossyImageCompression        = Tag{0x0028, 0x2110}
	DICOMLossyImageCompressionRatio   = Tag{0x0028, 0x2112}
	DICOMLossyImageCompressionMethod  = Tag{0x0028, 0x2114}
)
