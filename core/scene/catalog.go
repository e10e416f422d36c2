package scene

// Scene catalogs of the shipped variants.
var (
	DirectorCatalog = []string{
		"Prism Bloom",
		"Spectrum Tunnel",
		"Pulse Grid",
		"Orbital Mesh",
		"Liquid Stripes",
		"Vortex Bloom",
		"Neon Skyline",
		"Fractal Petals",
		"Star Drift",
		"Ribbon Storm",
	}

	CosmosCatalog = []string{
		"Prism Bloom",
		"Spectrum Tunnel",
		"Pulse Grid",
		"Orbital Nodes",
		"Liquid Stripes",
		"Vortex Field",
		"Neon Bars",
		"Fractal Flower",
		"Starfall",
		"Ribbon Storm",
	}

	MasterpieceCatalog = []string{
		"Prism Cathedral",
		"Aurora Tunnel",
		"Pulse Mosaic",
		"Orbital Mesh",
		"Liquid Curtains",
		"Vortex Needles",
		"Neon Skyline",
		"Fractal Lotus",
		"Meteor Rain",
		"Ribbon Storm",
		"Hex Matrix",
		"Crystal Shards",
		"Sonar Echo",
		"Plasma Threads",
		"City Wireframe",
		"Particle Bloom",
		"Chromatic Wormhole",
		"Glyph Rain",
		"Ink Smoke",
		"Quantum Lattice",
	}
)
